// Package cropdetect finds black bars by sampling ffmpeg's cropdetect filter
// at several points in the file and taking the modal rectangle. Sampling is
// confined to the middle 80% of the runtime so intros and credit rolls do not
// distort the result.
package cropdetect
