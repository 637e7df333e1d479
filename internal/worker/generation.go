package worker

import "fmt"

// Generation is the versioned set of store names owned by one worker
// release. Activating a generation deletes every store outside it.
type Generation struct {
	General string
	Runtime string
	Images  string
	Fonts   string
}

// NewGeneration derives the four store names for site at version.
func NewGeneration(site, version string) Generation {
	return Generation{
		General: fmt.Sprintf("%s-v%s", site, version),
		Runtime: fmt.Sprintf("%s-runtime-v%s", site, version),
		Images:  fmt.Sprintf("%s-images-v%s", site, version),
		Fonts:   fmt.Sprintf("%s-fonts-v%s", site, version),
	}
}

// Names returns the store names of g.
func (g Generation) Names() []string {
	return []string{g.General, g.Runtime, g.Images, g.Fonts}
}

// Contains reports whether name belongs to g.
func (g Generation) Contains(name string) bool {
	for _, n := range g.Names() {
		if n == name {
			return true
		}
	}
	return false
}
