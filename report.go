package sakusei

// FileInfo describes one file to be written.
type FileInfo struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	Content  string `json:"-"`
}

// FileReport is the outcome of synchronising one migration file.
type FileReport struct {
	MigrationFilePath string `json:"migrationFilePath"`
	UpdateExisting    bool   `json:"updateExisting"`
	CreateNew         bool   `json:"createNew,omitempty"`
	Comment           string `json:"comment"`
}

// Changed reports whether the file was created or rewritten.
func (r FileReport) Changed() bool {
	return r.CreateNew || r.UpdateExisting
}

type Report struct {
	RootVersion            FileReport            `json:"rootVersion"`
	Versions               map[string]FileReport `json:"versions"`
	RequireDataModelUpdate bool                  `json:"requireDataModelUpdate"`
}

// ---

type RevertFileReport struct {
	MigrationFilePath string `json:"migrationFilePath"`
	Comment           string `json:"comment"`
}

type RevertReport struct {
	Versions map[string]RevertFileReport `json:"versions"`
}

// ---

// SQLFiles lists every file generated for a table. Migrations and
// RevertMigrations map version names to file names; Migrations also carries
// the root entry.
type SQLFiles struct {
	Migrations       map[string]string `json:"migrations"`
	RevertMigrations map[string]string `json:"revertMigrations"`
	AllFiles         []string          `json:"allFiles"`
}

// ---

type syncComments struct {
	created   string
	updated   string
	unchanged string
}

var (
	rootComments = syncComments{ // nolint:gochecknoglobals
		created:   "Create a new migration file",
		updated:   "Updating Root Migration file for Schema",
		unchanged: "Current Migration file is same as last one",
	}
	versionComments = syncComments{ // nolint:gochecknoglobals
		created:   "Create new migration file for content",
		updated:   "Update existing migration file",
		unchanged: "Current migration file is same as last one",
	}
)

const revertComment = "Revert migration file"
