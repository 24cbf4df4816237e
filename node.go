package treefs

// NodeKind is the persisted node variant
type NodeKind uint32

const (
	FileKind NodeKind = 1
	DirKind  NodeKind = 2
)

func (k NodeKind) String() string {
	switch k {
	case FileKind:
		return "file"
	case DirKind:
		return "dir"
	default:
		return "unknown"
	}
}

// NodeRecord is the flat, persisted form of a filesystem node.
// Times are unix nanoseconds.
type NodeRecord struct {
	Kind       NodeKind
	Name       string
	Fullname   string
	UID        uint32
	GID        uint32
	Perm       uint32
	Nlink      uint32
	InodeID    uint64
	BlockCount uint64
	Atime      int64
	Mtime      int64
	Ctime      int64
	ChildIDs   []uint64 // Index-aligned with the directory's children
	Data       []byte   // File contents; len(Data) is the logical size
}
