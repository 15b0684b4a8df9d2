// Package main trains an LSTM handwritten digit classifier on the
// MNIST dataset using only CPU multi-core processing, then reports
// train and test accuracy, the confusion matrix and a LaTeX artifact
// with the training curves.
package main
