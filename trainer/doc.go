// Package trainer provides high-level training orchestration for
// sequence networks. It runs the epoch loop over a dataset with
// multi-core batch processing, mixed precision scaling, validation and
// best-checkpoint tracking.
package trainer
