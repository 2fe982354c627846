package task

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

var (
	taskContextType = reflect.TypeOf((*TaskContext)(nil))
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
)

// Wrap 将普通函数包装为 Task（对外导出）
// 支持的函数签名：
//
//	func(tc *TaskContext, a A, b B, ...) (R, error)
//	func(tc *TaskContext, a A, b B, ...) error
//
// 上游输出按顺序传给 a、b...，类型不一致时会尝试转换；支持可变参数。
func Wrap(fn interface{}) (Task, error) {
	if t, ok := fn.(Task); ok {
		return t, nil
	}
	fnValue := reflect.ValueOf(fn)
	if !fnValue.IsValid() {
		return nil, fmt.Errorf("函数不能为空")
	}
	fnType := fnValue.Type()

	// 检查是否为函数类型
	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("参数必须是函数类型，当前类型: %v", fnType.Kind())
	}
	if fnType.NumIn() == 0 || fnType.In(0) != taskContextType {
		return nil, fmt.Errorf("函数第一个参数必须是*TaskContext")
	}

	// 检查返回值
	numOut := fnType.NumOut()
	if numOut == 0 || numOut > 2 {
		return nil, fmt.Errorf("函数必须返回error或(result, error)")
	}
	if !fnType.Out(numOut - 1).Implements(errorType) {
		return nil, fmt.Errorf("函数最后一个返回值必须是error，当前类型: %v", fnType.Out(numOut-1))
	}

	return Func(func(tc *TaskContext, args ...any) (any, error) {
		in, err := buildCallArgs(fnType, tc, args)
		if err != nil {
			return nil, err
		}
		results := fnValue.Call(in)

		if last := results[numOut-1]; !last.IsNil() {
			return nil, last.Interface().(error)
		}
		if numOut == 1 {
			return nil, nil
		}
		return results[0].Interface(), nil
	}), nil
}

// MustWrap 同 Wrap，失败时panic
func MustWrap(fn interface{}) Task {
	t, err := Wrap(fn)
	if err != nil {
		panic(err)
	}
	return t
}

// buildCallArgs 把位置参数转换为函数调用所需的 reflect.Value
func buildCallArgs(fnType reflect.Type, tc *TaskContext, args []any) ([]reflect.Value, error) {
	fixed := fnType.NumIn() - 1
	if fnType.IsVariadic() {
		fixed--
	}
	if len(args) < fixed || (!fnType.IsVariadic() && len(args) > fixed) {
		return nil, fmt.Errorf("参数数量不匹配: 函数需要%d个上游参数，实际为%d个", fixed, len(args))
	}

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(tc))
	for i, arg := range args {
		var target reflect.Type
		if i < fixed {
			target = fnType.In(i + 1)
		} else {
			target = fnType.In(fnType.NumIn() - 1).Elem()
		}
		v, err := convertArgToType(arg, target)
		if err != nil {
			return nil, &ArgError{Index: i, Expected: target.String(), Actual: arg}
		}
		in = append(in, v)
	}
	return in, nil
}

// convertArgToType 将参数值转换为指定类型
func convertArgToType(value interface{}, targetType reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(targetType), nil
	}

	valueType := reflect.TypeOf(value)
	if valueType.AssignableTo(targetType) {
		return reflect.ValueOf(value), nil
	}

	// 数值之间的转换
	if isNumber(valueType.Kind()) && isNumber(targetType.Kind()) {
		return reflect.ValueOf(value).Convert(targetType), nil
	}

	if str, ok := value.(string); ok {
		return convertStringToType(str, targetType)
	}

	return reflect.Value{}, fmt.Errorf("无法将类型 %v 转换为 %v", valueType, targetType)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// convertStringToType 将字符串转换为指定类型
// 支持基本类型和通过JSON反序列化的复杂类型
func convertStringToType(value string, targetType reflect.Type) (reflect.Value, error) {
	switch targetType.Kind() {
	case reflect.String:
		return reflect.ValueOf(value).Convert(targetType), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("无法转换为int: %w", err)
		}
		return reflect.ValueOf(intVal).Convert(targetType), nil
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("无法转换为float: %w", err)
		}
		return reflect.ValueOf(floatVal).Convert(targetType), nil
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("无法转换为bool: %w", err)
		}
		return reflect.ValueOf(boolVal), nil
	case reflect.Struct, reflect.Slice, reflect.Map, reflect.Ptr:
		// 复杂类型通过JSON反序列化
		result := reflect.New(targetType)
		if err := json.Unmarshal([]byte(value), result.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("JSON反序列化失败: %w", err)
		}
		return result.Elem(), nil
	}
	return reflect.Value{}, fmt.Errorf("不支持的目标类型: %v", targetType)
}
