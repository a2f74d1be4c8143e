package domain

// ChartKind selects how the front-end draws a chart.
type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
	ChartPie  ChartKind = "pie"
)

// Dataset is one series of values aligned with Chart.Labels.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Chart is a render-ready chart description.
type Chart struct {
	ID       string    `json:"id"`
	Kind     ChartKind `json:"kind"`
	Title    string    `json:"title"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Empty reports whether the chart has nothing to draw.
func (c Chart) Empty() bool {
	for _, ds := range c.Datasets {
		for _, v := range ds.Data {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// CategoryCount is a row of the per-category aggregate.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// DayCount is a row of the created-per-day aggregate. Day is YYYY-MM-DD.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// RecordStats aggregates the records visible to a scope.
type RecordStats struct {
	Total        int             `json:"total"`
	Shared       int             `json:"shared"`
	Private      int             `json:"private"`
	ByCategory   []CategoryCount `json:"by_category"`
	CreatedByDay []DayCount      `json:"created_by_day"`
}
