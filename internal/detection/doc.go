// Package detection runs the CRAFT scene-text detector and turns its score
// maps into quadrilateral text boxes.
//
// # Pipeline
//
// Detect wraps a single forward pass of a Model:
//
//  1. Preprocess: resize the image keeping its aspect ratio so the long side
//     is mag_ratio times larger but never above canvas_size, pad the result
//     to a multiple of 32 and normalize it with the ImageNet mean and
//     standard deviation into a CHW float tensor.
//  2. Forward: the model returns a region map and an affinity (link) map at
//     half the padded input resolution.
//  3. Postprocess: pixels above low_text in the region map or above
//     link_threshold in the affinity map are grouped into 4-connected
//     components. Components under 10 pixels or whose peak region score is
//     below text_threshold are dropped. Each survivor is dilated, fitted
//     with a minimum-area rectangle and ordered clockwise from its top-left
//     corner.
//  4. Boxes are scaled back to source image coordinates (x2 for the map
//     stride, divided by the resize ratio).
//
// # Models
//
// Model is the opaque forward pass. ONNXModel runs an exported CRAFT graph
// through onnxruntime; tests supply synthetic score maps instead.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
package detection
