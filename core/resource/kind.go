package resource

import (
	"path"
	"strings"
)

// Kind is one of the six package partitions.
type Kind string

const (
	KindDataset Kind = "dataset"
	KindFigure  Kind = "figure"
	KindAudio   Kind = "audio"
	KindVideo   Kind = "video"
	KindCode    Kind = "code"
	KindArticle Kind = "article"
)

// Kinds lists the partitions in tie-break priority order: when two kinds
// are equally common among a resource's files, the earlier one wins.
var Kinds = []Kind{KindDataset, KindCode, KindVideo, KindAudio, KindFigure, KindArticle}

// DirectoryFormat is the encoding format recorded for code bundles.
const DirectoryFormat = "application/x-directory"

// mimeTypes maps lowercase extensions to MIME types. Only extensions listed
// here count as recognized when promoting single-member archives.
var mimeTypes = map[string]string{
	// images
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png", ".gif": "image/gif",
	".tif": "image/tiff", ".tiff": "image/tiff", ".bmp": "image/bmp", ".webp": "image/webp",
	".svg": "image/svg+xml", ".eps": "image/x-eps",
	// video
	".mp4": "video/mp4", ".m4v": "video/x-m4v", ".mov": "video/quicktime", ".avi": "video/x-msvideo",
	".mpg": "video/mpeg", ".mpeg": "video/mpeg", ".webm": "video/webm", ".wmv": "video/x-ms-wmv",
	".flv": "video/x-flv", ".mkv": "video/x-matroska",
	// audio
	".mp3": "audio/mpeg", ".wav": "audio/x-wav", ".ogg": "audio/ogg", ".oga": "audio/ogg",
	".m4a": "audio/mp4", ".flac": "audio/flac", ".aac": "audio/aac", ".aif": "audio/x-aiff",
	// documents
	".pdf": "application/pdf", ".doc": "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text", ".rtf": "application/rtf",
	".tex": "application/x-tex",
	// tabular and data
	".csv": "text/csv", ".tsv": "text/tab-separated-values", ".txt": "text/plain",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".json": "application/json", ".xml": "application/xml", ".html": "text/html", ".htm": "text/html",
	".fasta": "text/x-fasta", ".fa": "text/x-fasta", ".fastq": "text/x-fastq", ".pdb": "chemical/x-pdb",
	".h5": "application/x-hdf5", ".hdf5": "application/x-hdf5", ".mat": "application/x-matlab-data",
	".sav": "application/x-spss-sav", ".dta": "application/x-stata-dta", ".rds": "application/x-r-data",
	".nc": "application/x-netcdf", ".ppt": "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	// source code
	".py": "text/x-python", ".r": "text/x-r", ".m": "text/x-matlab", ".c": "text/x-c",
	".h": "text/x-c", ".cpp": "text/x-c++", ".cc": "text/x-c++", ".hpp": "text/x-c++",
	".java": "text/x-java", ".js": "text/javascript", ".ts": "text/x-typescript",
	".go": "text/x-go", ".rs": "text/x-rust", ".sh": "application/x-sh", ".pl": "text/x-perl",
	".rb": "text/x-ruby", ".jl": "text/x-julia", ".ipynb": "application/x-ipynb+json",
	".sas": "text/x-sas", ".do": "text/x-stata", ".f": "text/x-fortran", ".f90": "text/x-fortran",
	".scala": "text/x-scala", ".sql": "application/sql", ".php": "text/x-php", ".rmd": "text/x-r-markdown",
	".nb": "application/mathematica", ".cs": "text/x-csharp", ".swift": "text/x-swift",
}

var codeExtensions = map[string]bool{
	".py": true, ".r": true, ".m": true, ".c": true, ".h": true, ".cpp": true, ".cc": true, ".hpp": true,
	".java": true, ".js": true, ".ts": true, ".go": true, ".rs": true, ".sh": true, ".pl": true,
	".rb": true, ".jl": true, ".ipynb": true, ".sas": true, ".do": true, ".f": true, ".f90": true,
	".scala": true, ".sql": true, ".php": true, ".rmd": true, ".nb": true, ".cs": true, ".swift": true,
}

var articleExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".odt": true, ".rtf": true, ".tex": true,
}

// MimeType returns the MIME type for name and whether its extension is recognized.
func MimeType(name string) (string, bool) {
	mt, ok := mimeTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		return "application/octet-stream", false
	}
	return mt, true
}

// KindOf infers the partition for a file from its extension.
func KindOf(name string) Kind {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case codeExtensions[ext]:
		return KindCode
	case articleExtensions[ext]:
		return KindArticle
	}
	mt, _ := MimeType(name)
	if k := fromMajor(mt); k != "" {
		return k
	}
	return KindDataset
}

// fromMajor maps video/audio/image MIME types to their partition.
func fromMajor(mimeType string) Kind {
	major, _, _ := strings.Cut(mimeType, "/")
	switch strings.ToLower(major) {
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	case "image":
		return KindFigure
	}
	return ""
}

// majority returns the most common kind, breaking ties by Kinds order.
// It returns "" for an empty input.
func majority(kinds []Kind) Kind {
	counts := make(map[Kind]int, len(kinds))
	for _, k := range kinds {
		counts[k]++
	}
	best, bestN := Kind(""), 0
	for _, k := range Kinds {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}
