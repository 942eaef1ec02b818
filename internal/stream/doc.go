// Package stream demultiplexes a live multipart/x-mixed-replace MJPEG body
// into decoded JPEG frames.
//
// Frame extraction scans for the JPEG start-of-image (FF D8) and
// end-of-image (FF D9) markers rather than the multipart boundary, so a
// misreported boundary never breaks extraction. Frames split across any
// number of network reads are reassembled; slices that fail to decode are
// dropped without disturbing the frames that follow.
package stream
