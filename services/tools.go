package services

// Tool describes one processing tool the workers know how to run. The
// registry is closed: completion requests naming any other id are rejected
// before a byte of file I/O happens.
type Tool struct {
	ID        string
	Name      string
	OutputExt string
}

var toolRegistry = map[string]Tool{
	"pdf-compress":   {ID: "pdf-compress", Name: "Compress PDF", OutputExt: ".pdf"},
	"pdf-merge":      {ID: "pdf-merge", Name: "Merge PDF", OutputExt: ".pdf"},
	"pdf-split":      {ID: "pdf-split", Name: "Split PDF", OutputExt: ".zip"},
	"pdf-to-docx":    {ID: "pdf-to-docx", Name: "PDF to Word", OutputExt: ".docx"},
	"docx-to-pdf":    {ID: "docx-to-pdf", Name: "Word to PDF", OutputExt: ".pdf"},
	"image-resize":   {ID: "image-resize", Name: "Resize Image", OutputExt: ""},
	"image-convert":  {ID: "image-convert", Name: "Convert Image", OutputExt: ""},
	"image-compress": {ID: "image-compress", Name: "Compress Image", OutputExt: ""},
}

func LookupTool(toolID string) (Tool, bool) {
	tool, ok := toolRegistry[toolID]
	return tool, ok
}

func IsValidTool(toolID string) bool {
	_, ok := toolRegistry[toolID]
	return ok
}
