package ir

// EngineVersion is the applier engine version.
const EngineVersion = "0.1.0"
