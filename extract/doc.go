// Package extract composites a recorded clip into a 3×3 grid of frames
// and encodes it as a JPEG data URL.
//
// Seeks run strictly in order against one decoder. Each seek is bounded by
// a timeout; a completed seek without a picture yields a labelled
// placeholder tile, which still counts as a usable cell.
package extract
