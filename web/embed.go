package web

import "embed"

// Templates embeds HTML templates for pages and printable documents.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds static assets.
//
//go:embed static/**/*
var Static embed.FS
