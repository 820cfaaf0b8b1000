package playlist

import (
	"math/rand"

	"VcFM/model"
)

// 规则引擎：纯函数，根据有序队列、当前条目和播放规则计算下一首/上一首。
// 返回值 ok 为 false 表示"没有下一首/上一首"，由调用方决定收尾动作。

func indexOf(entries []string, entry string) int {
	for i, e := range entries {
		if e == entry {
			return i
		}
	}
	return -1
}

// Next 计算下一个队列条目。
// shuffle 无视 force 与当前位置，等概率选取（可能再次选中当前曲目）；
// repeat-one 在非强制时原地循环，强制跳转则穿透到正常推进逻辑；
// 到达队尾时 repeat 回绕到队首，queue 终止，强制导航下除 queue 外也回绕。
func Next(entries []string, current string, rule model.Rule, force bool) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}

	if rule == model.RuleShuffle {
		return entries[rand.Intn(len(entries))], true
	}

	index := indexOf(entries, current)
	if index == -1 {
		return "", false
	}
	index++

	if force {
		if index == len(entries) {
			if rule == model.RuleQueue {
				return "", false
			}
			index = 0
		}
		return entries[index], true
	}

	if rule == model.RuleRepeatOne {
		return current, true
	}

	if index == len(entries) {
		if rule != model.RuleRepeat {
			return "", false
		}
		index = 0
	}
	return entries[index], true
}

// Previous 计算上一个队列条目。
// 只有规则恰为 repeat 时才从队首回绕到队尾；repeat-one 不回绕。
// 这一不对称与 Next 的回绕行为是有意保留的。
func Previous(entries []string, current string, rule model.Rule) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}

	if rule == model.RuleShuffle {
		return entries[rand.Intn(len(entries))], true
	}

	index := indexOf(entries, current)
	if index == -1 {
		return "", false
	}
	index--

	if index == -1 {
		if rule != model.RuleRepeat {
			return "", false
		}
		index = len(entries) - 1
	}
	return entries[index], true
}
