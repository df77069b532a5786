package ir

// EngineVersion is the journal format version written by this engine.
// Journals whose major version differs cannot be resumed.
const EngineVersion = "1.2.0"
