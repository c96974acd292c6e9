// Package pose defines the keypoint samples a pose detector emits and the
// geometry the capture guidance needs from them: landmark completeness and
// the stance turn angle of the shoulder line.
package pose
