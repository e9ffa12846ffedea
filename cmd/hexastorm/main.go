// Hexastorm controls a rotating prism laser scanner: it synchronizes the
// scanhead, streams scanline data to it and exposes images.
package main

func main() {
	Execute()
}
