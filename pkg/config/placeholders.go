package config

import (
	"fmt"
	"sort"
	"strings"
)

// ReplacePlaceholders 替换字符串中的 ${name} 占位符
// 返回替换后的字符串与未找到取值的占位符名称
func ReplacePlaceholders(value string, vars map[string]interface{}) (string, []string) {
	var (
		b          strings.Builder
		unreplaced []string
	)
	rest := value
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start
		name := rest[start+2 : end]
		b.WriteString(rest[:start])

		actual, exists := vars[name]
		switch {
		case name == "" || !exists:
			unreplaced = append(unreplaced, name)
			b.WriteString(rest[start : end+1])
		case actual == nil:
		default:
			b.WriteString(fmt.Sprintf("%v", actual))
		}
		rest = rest[end+1:]
	}
	return b.String(), unreplaced
}

// expandValue 替换参数值中的占位符
// 整个值就是一个占位符时保留变量的原始类型
func expandValue(value interface{}, vars map[string]interface{}) (interface{}, []string) {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") && strings.Count(v, "${") == 1 {
			if actual, ok := vars[v[2:len(v)-1]]; ok {
				return actual, nil
			}
		}
		return ReplacePlaceholders(v, vars)
	case map[string]interface{}:
		var unreplaced []string
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			expanded, missing := expandValue(item, vars)
			out[key] = expanded
			unreplaced = append(unreplaced, missing...)
		}
		return out, unreplaced
	case []interface{}:
		var unreplaced []string
		out := make([]interface{}, len(v))
		for i, item := range v {
			expanded, missing := expandValue(item, vars)
			out[i] = expanded
			unreplaced = append(unreplaced, missing...)
		}
		return out, unreplaced
	default:
		return value, nil
	}
}

func placeholderError(run string, unreplaced []string) error {
	sort.Strings(unreplaced)
	return fmt.Errorf("运行 %s 中以下占位符未找到对应的值: %v", run, unreplaced)
}
