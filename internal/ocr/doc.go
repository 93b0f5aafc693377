// Package ocr recognizes words in uploaded images using Tesseract.
//
// The demo form offers three languages, named by their short codes:
//
//   - "en" - English (Tesseract "eng")
//   - "uk" - Ukrainian (Tesseract "ukr")
//   - "vi" - Vietnamese (Tesseract "vie"), the default
//
// Any other code is rejected with an *UnsupportedLanguageError before
// Tesseract is touched.
//
// # Prerequisites
//
// Tesseract and the language data for every offered language must be
// installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng tesseract-ocr-ukr tesseract-ocr-vie
//   - macOS: brew install tesseract tesseract-lang
//
// # Concurrency
//
// TesseractPool bounds the number of engines running at once. A request
// waiting for a free engine gives up when its context is cancelled.
//
// # Preprocessing
//
// With Binarize set, images are converted to grayscale and thresholded with
// Sauvola's algorithm before recognition. This helps with photographed ID
// cards that have uneven lighting.
package ocr
