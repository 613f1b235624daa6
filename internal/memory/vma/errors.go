package vma

import "errors"

var (
	// ErrInvalidRange is returned for a malformed [start, end) pair.
	ErrInvalidRange = errors.New("vma: invalid range")
	// ErrOverlap is returned by Add when the new region intersects an
	// existing one.
	ErrOverlap = errors.New("vma: overlaps existing region")
	// ErrNoSpace is returned by Alloc when no gap large enough exists in
	// the arena's window.
	ErrNoSpace = errors.New("vma: no gap large enough")
	// ErrNotFound is returned by Free when [start, end) is not fully
	// covered by a single existing region.
	ErrNotFound = errors.New("vma: region not found")
)
