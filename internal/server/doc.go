// Package server implements the browser demo: an OCR form and a page that
// lists the extracted records table.
//
// # Routes
//
// HTML pages:
//   - GET  /         upload form (image plus language checkboxes, default vi)
//   - POST /ocr      annotated image, Text/Confidence table and confidence chart
//   - POST /flag     records a Correct or Wrong judgement for a previous result
//   - GET  /records  every row of the extracted_data table
//
// JSON equivalents:
//   - POST /api/ocr
//   - POST /api/flag
//   - GET  /api/records
//   - GET  /api/health
//
// Annotated images are served from GET /results/<image id>_result.jpg.
//
// # Uploads
//
// Each upload is sniffed with mimetype, stored under the upload directory as
// <uuid><ext>, and decoded through an imaging.ImageCache. The OCR words are
// saved next to it as <uuid>.json so a later flag can refer to them without
// running OCR again.
//
// # Flagging
//
// Flags are appended to <flag dir>/log.csv (image, languages, label,
// flagged_at) and the image is copied to <flag dir>/Input. When a record
// writer is configured, words flagged Correct are also stored in the
// database.
//
// # Optional collaborators
//
// The detector and the record store may be nil. Without a detector the page
// shows OCR results only; without a store the records page answers 503.
//
// # Usage
//
//	srv, err := server.New(server.Config{
//	    Recognizer: ocr.NewTesseractPool(ocr.PoolConfig{Size: 2}),
//	    UploadDir:  "uploads",
//	    Flags:      server.NewFlagLog("Results"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = srv.Run(ctx, "0.0.0.0:7860")
package server
