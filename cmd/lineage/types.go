package main

// CLIResult is the top-level envelope for every command's output.
type CLIResult struct {
	Command string `json:"command" yaml:"command"`
	Results any    `json:"results" yaml:"results"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIIndexSummary reports a full scan.
type CLIIndexSummary struct {
	Root      string   `json:"root" yaml:"root"`
	Database  string   `json:"database" yaml:"database"`
	Files     int      `json:"files" yaml:"files"`
	Classes   int      `json:"classes" yaml:"classes"`
	Pending   int      `json:"pending" yaml:"pending"`
	Generated []string `json:"generated" yaml:"generated"`
	Duration  string   `json:"duration" yaml:"duration"`
	Errors    string   `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// CLIPending is a class waiting for its parent.
type CLIPending struct {
	File           string `json:"file" yaml:"file"`
	Name           string `json:"name" yaml:"name"`
	ExpectedParent string `json:"expectedParent" yaml:"expectedParent"`
	ExpectedFile   string `json:"expectedFile,omitempty" yaml:"expectedFile,omitempty"`
}
