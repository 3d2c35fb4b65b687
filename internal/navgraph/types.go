package navgraph

// screenRecord is one learned screen within a package's graph.
type screenRecord struct {
	ScreenID    string   `json:"screen_id"`
	Activity    string   `json:"activity"`
	Landmarks   []string `json:"landmarks"`
	DisplayName string   `json:"display_name,omitempty"`
	IsHome      bool     `json:"is_home,omitempty"`
}

// transitionRecord is one learned edge between two screens, with the
// concrete ADB primitive that was observed taking it and running stats on
// how reliably it does so.
type transitionRecord struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	ActionType string `json:"action_type"`
	Element    string `json:"element,omitempty"`
	X, Y       int    `json:"x,omitempty"`
	KeyCode    int    `json:"key_code,omitempty"`

	SuccessCount int   `json:"success_count"`
	FailureCount int   `json:"failure_count"`
	MeanMs       int64 `json:"mean_ms"`
}

// packageGraph is the on-disk shape of one "navigation/<package>.json" file:
// every screen and transition learned for that app, plus which screen is
// its home.
type packageGraph struct {
	Package      string                      `json:"package"`
	Screens      map[string]screenRecord     `json:"screens"`
	Transitions  map[string]transitionRecord `json:"transitions"`
	HomeScreenID string                      `json:"home_screen_id,omitempty"`
}

func newPackageGraph(pkg string) *packageGraph {
	return &packageGraph{
		Package:     pkg,
		Screens:     make(map[string]screenRecord),
		Transitions: make(map[string]transitionRecord),
	}
}

func transitionKey(from, to string) string {
	return from + "->" + to
}
