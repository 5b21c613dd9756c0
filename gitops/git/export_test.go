package git

// IsZeroRevisionForTest exposes isZeroRevision.
var IsZeroRevisionForTest = isZeroRevision
