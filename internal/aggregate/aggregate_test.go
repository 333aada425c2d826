package aggregate

import (
	"reflect"
	"testing"

	"faceomatic/internal/classify"
)

func TestMergeJoinsWithinGap(t *testing.T) {
	got := Merge([]int{20, 10, 13, 11, 11}, 3)
	want := []Interval{{10, 13}, {20, 20}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
	if got := Merge(nil, 3); got == nil || len(got) != 0 {
		t.Fatalf("expected empty, non-nil slice, got %#v", got)
	}
	if got := Merge([]int{1, 5}, 3); len(got) != 2 {
		t.Fatalf("gap of four must split: %v", got)
	}
}

func result(labels map[string]string, detections map[string]map[string][]classify.Score) classify.Result {
	return classify.Result{Progress: 100, LabelDict: labels, Detections: detections}
}

func TestAggregateOffsetsByCumulativeDuration(t *testing.T) {
	labels := map[string]string{"1": "Jane"}
	segments := []Segment{
		{Index: 0, Duration: 1200, Result: result(labels, map[string]map[string][]classify.Score{})},
		{Index: 1, Duration: 1200, Result: result(labels, map[string]map[string][]classify.Score{})},
		{Index: 2, Duration: 600, Result: result(labels, map[string]map[string][]classify.Score{
			"5": {"1": {{Score: 97}}},
		})},
	}
	report := Aggregate(segments, Options{Threshold: 90, GapTolerance: 3})
	if len(report.Labels) != 1 {
		t.Fatalf("unexpected labels %+v", report.Labels)
	}
	want := []Interval{{2405, 2405}}
	if got := report.Labels[0].Intervals; !reflect.DeepEqual(got, want) {
		t.Fatalf("intervals = %v, want %v", got, want)
	}
	if report.Duration != 3000 {
		t.Fatalf("unexpected duration %v", report.Duration)
	}
}

func TestAggregateThresholdIsStrictAndUsesBestCandidate(t *testing.T) {
	labels := map[string]string{"1": "Jane", "2": "John", "3": "Nobody"}
	segments := []Segment{{Duration: 100.5, Result: result(labels, map[string]map[string][]classify.Score{
		"10":   {"1": {{Score: 40}, {Score: 91}}, "2": {{Score: 90}}},
		"11.7": {"1": {{Score: 92}}},
	})}, {Duration: 50, Result: result(map[string]string{"4": "Jane"}, map[string]map[string][]classify.Score{
		"0.6": {"4": {{Score: 99}}},
	})}}

	report := Aggregate(segments, Options{Threshold: 90, GapTolerance: 3})
	names := make([]string, 0, len(report.Labels))
	for _, l := range report.Labels {
		names = append(names, l.Name)
	}
	if !reflect.DeepEqual(names, []string{"Jane", "John", "Nobody"}) {
		t.Fatalf("labels not sorted union: %v", names)
	}
	jane := report.Labels[0]
	if want := []Interval{{10, 11}, {101, 101}}; !reflect.DeepEqual(jane.Intervals, want) {
		t.Fatalf("Jane intervals = %v, want %v", jane.Intervals, want)
	}
	if report.Labels[1].Found() || report.Labels[2].Found() {
		t.Fatalf("score of exactly 90 must not count: %+v", report.Labels[1:])
	}
	if report.Labels[2].Intervals == nil {
		t.Fatal("labels without hits keep an empty interval list")
	}
}
