// conf/consts.go hard coded constants
package conf

const (
	ModelSampleRate = 48000 // Sample rate the BirdNET model expects
	BitDepth        = 16    // Bit depth of captured PCM audio
	CaptureLength   = 3     // Length of an analysis chunk in seconds

	DefaultModelVersion = "BirdNET_GLOBAL_6K_V2.4"
)
