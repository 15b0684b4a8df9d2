// Package main classifies the MNIST test set with a trained checkpoint
// and prints overall and per-digit accuracy.
package main
