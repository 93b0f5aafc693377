// Package imaging loads images and renders the visual outputs of the demo:
// box overlays, score heat maps and the 2x2 debugging composite.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Boxes are
// geometry.Quad values in the same frame as the source image.
//
// # Drawing
//
// DrawBoxes never mutates its input; it draws on a copy. A box that cannot
// be drawn is skipped without aborting the others, so one bad detection
// never hides the rest of the result.
//
// # Result Files
//
// SaveResult writes two JPEGs per evaluated image into a result directory:
//
//	res_<stem>.jpg      boxed original (predicted green, ground truth red,
//	                    ignored ground truth gray)
//	res_<stem>_box.jpg  composite: original | boxed
//	                               region overlay | affinity overlay
//
// Overlays blend the JET heat map over the original at 40/60 with a +5
// brightness offset.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. All other functions are stateless.
package imaging
