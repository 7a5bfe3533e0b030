// Package objectstore stores artwork originals and derivatives in an S3
// compatible bucket.
package objectstore
