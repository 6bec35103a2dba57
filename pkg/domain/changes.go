package domain

// ChangeSet is the result of a structural diff between two documents' keyed
// entries: entity ids partitioned into added, modified, and removed.
type ChangeSet struct {
	Added        []string `json:"added"`
	Modified     []string `json:"modified"`
	Removed      []string `json:"removed"`
	TotalChanges int      `json:"totalChanges"`
}

// Empty reports whether the change set records no differences.
func (c ChangeSet) Empty() bool { return c.TotalChanges == 0 }

// Merge folds another change set's entries into this one, recomputing the
// total.
func (c *ChangeSet) Merge(other ChangeSet) {
	c.Added = append(c.Added, other.Added...)
	c.Modified = append(c.Modified, other.Modified...)
	c.Removed = append(c.Removed, other.Removed...)
	c.TotalChanges = len(c.Added) + len(c.Modified) + len(c.Removed)
}
