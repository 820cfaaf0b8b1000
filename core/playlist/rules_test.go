package playlist

import (
	"testing"

	"VcFM/model"
)

func TestNext(t *testing.T) {
	entries := []string{"1-aaa", "2-bbb", "3-ccc"}

	tests := []struct {
		name    string
		entries []string
		current string
		rule    model.Rule
		force   bool
		want    string
		wantOK  bool
	}{
		{"空队列", nil, "", model.RuleQueue, false, "", false},
		{"当前条目不在队列", entries, "9-zzz", model.RuleQueue, false, "", false},

		{"顺序规则中间推进", entries, "1-aaa", model.RuleQueue, false, "2-bbb", true},
		{"顺序规则队尾终止", entries, "3-ccc", model.RuleQueue, false, "", false},
		{"顺序规则强制跳转队尾仍终止", entries, "3-ccc", model.RuleQueue, true, "", false},

		{"循环规则中间推进", entries, "2-bbb", model.RuleRepeat, false, "3-ccc", true},
		{"循环规则队尾回绕", entries, "3-ccc", model.RuleRepeat, false, "1-aaa", true},
		{"循环规则强制队尾回绕", entries, "3-ccc", model.RuleRepeat, true, "1-aaa", true},

		{"单曲循环原地", entries, "2-bbb", model.RuleRepeatOne, false, "2-bbb", true},
		{"单曲循环强制推进", entries, "2-bbb", model.RuleRepeatOne, true, "3-ccc", true},
		{"单曲循环强制队尾回绕", entries, "3-ccc", model.RuleRepeatOne, true, "1-aaa", true},
		{"单曲循环队尾非强制仍原地", entries, "3-ccc", model.RuleRepeatOne, false, "3-ccc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Next(tt.entries, tt.current, tt.rule, tt.force)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Next() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNextShuffle(t *testing.T) {
	entries := []string{"1-aaa", "2-bbb", "3-ccc"}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		got, ok := Next(entries, "1-aaa", model.RuleShuffle, false)
		if !ok {
			t.Fatal("shuffle 在非空队列上不应返回 false")
		}
		if indexOf(entries, got) == -1 {
			t.Fatalf("shuffle 返回了队列外的条目: %q", got)
		}
		seen[got] = true
	}
	// 1000 次抽样后每个条目都应出现过
	if len(seen) != len(entries) {
		t.Errorf("shuffle 覆盖条目数 = %d, want %d", len(seen), len(entries))
	}
}

func TestPrevious(t *testing.T) {
	entries := []string{"1-aaa", "2-bbb", "3-ccc"}

	tests := []struct {
		name    string
		entries []string
		current string
		rule    model.Rule
		want    string
		wantOK  bool
	}{
		{"空队列", nil, "", model.RuleQueue, "", false},
		{"当前条目不在队列", entries, "9-zzz", model.RuleRepeat, "", false},

		{"中间回退", entries, "3-ccc", model.RuleQueue, "2-bbb", true},
		{"顺序规则队首终止", entries, "1-aaa", model.RuleQueue, "", false},
		{"循环规则队首回绕到队尾", entries, "1-aaa", model.RuleRepeat, "3-ccc", true},
		{"单曲循环队首不回绕", entries, "1-aaa", model.RuleRepeatOne, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Previous(tt.entries, tt.current, tt.rule)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Previous() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPreviousShuffle(t *testing.T) {
	entries := []string{"1-aaa", "2-bbb"}
	for i := 0; i < 100; i++ {
		got, ok := Previous(entries, "2-bbb", model.RuleShuffle)
		if !ok || indexOf(entries, got) == -1 {
			t.Fatalf("shuffle Previous 返回 (%q, %v)", got, ok)
		}
	}
}

func TestCycleRule(t *testing.T) {
	tests := []struct {
		in   model.Rule
		want model.Rule
	}{
		{model.RuleQueue, model.RuleRepeat},
		{model.RuleRepeat, model.RuleRepeatOne},
		{model.RuleRepeatOne, model.RuleShuffle},
		{model.RuleShuffle, model.RuleQueue},
		{model.Rule("bogus"), model.RuleQueue},
		{model.Rule(""), model.RuleQueue},
	}
	for _, tt := range tests {
		if got := model.CycleRule(tt.in); got != tt.want {
			t.Errorf("CycleRule(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
