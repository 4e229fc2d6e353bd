// Package analysis looks at command histories in the frequency domain.
//
// A well-tuned tracker steers smoothly; weights that are too aggressive
// show up as a narrow peak in the steering spectrum a few Hz above DC.
// [DominantFrequency] finds that peak.
package analysis
