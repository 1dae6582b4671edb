// Package countdown renders millisecond deltas as countdown clocks and
// coarse relative labels.
package countdown
