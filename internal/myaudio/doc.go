// Package myaudio handles PCM buffering, audio format conversion, clip
// encoding and capture device management for the analysis pipeline.
package myaudio
