// Package voice checks spoken transcripts against the anchor phrases a ritual
// block expects to hear.
package voice
