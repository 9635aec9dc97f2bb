package ragrouter

var Version = "v0.1.0"
