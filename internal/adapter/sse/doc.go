// Package sse turns the chat backend's event stream into classified events.
//
// The pipeline has three pure stages with no I/O:
//
//	bytes --Split--> frames --Decode--> payload --Classify--> []domain.Event
//
// A frame is the text between two blank-line delimiters. Only frames that
// start with "data: " carry data; everything else (keep-alive comments,
// event/id lines) is protocol noise and is dropped. The data of a frame is
// either the sentinel [DONE] or a JSON object.
package sse
