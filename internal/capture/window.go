package capture

// windowBackend captures the bounding rectangle of a top-level window
// resolved by exact title match. Platform support lives in the build-tagged
// files; only Windows resolves windows today.
type windowBackend struct {
	title string
}

// surfaceBackend attaches a frame grabber to the named window and pulls a
// single rendered frame. Used for DirectX-rendered surfaces whose content
// a plain desktop copy may miss.
type surfaceBackend struct {
	title string
}
