package web

import "embed"

// TemplatesFS embeds the page and fragment templates.
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and htmx glue script.
//go:embed static/*
var StaticFS embed.FS
