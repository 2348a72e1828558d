// Package assets holds the prompt templates embedded into the monitor binary.
//
// Static prompts are plain strings; prompts that need run-time data are
// text/template files rendered through the Render* helpers.
package assets

// FrameMIMEType is the MIME type of every image sent to the vision service.
const FrameMIMEType = "image/jpeg"
