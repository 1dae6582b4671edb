// Package docstore serves calendar events from an S3 bucket holding one JSON
// document per UTC day.
//
// Documents live at <prefix>YYYY/MM/DD.json and contain an array of events in
// the canonical wire form. A missing document is an empty day.
package docstore
