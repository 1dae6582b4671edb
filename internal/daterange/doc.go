// Package daterange provides closed instant intervals and their unions.
package daterange
