// Package bench measures multipart production throughput.
//
// A Runner builds a fresh producer per iteration, drains it into a
// discarding writer and records the encode time in an HDR histogram.
// Iterations run concurrently and may be paced to a fixed rate.
package bench
