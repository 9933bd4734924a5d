package sundaythoughts

import "embed"

// EmbeddedAssets contains the client script and stylesheet served under
// /assets/: app.js, style.css
//
//go:embed embedded/*
var EmbeddedAssets embed.FS
