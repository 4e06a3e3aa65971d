package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"augustus/vectorized"
)

func requireSignature(name string, col *vectorized.DataColumn, sigs ...vectorized.SignatureType) error {
	s := sigOf(col)
	for _, want := range sigs {
		if s == want {
			return nil
		}
	}
	return NewValidationError("function %q does not accept a %s argument", name, col.FieldType.DataType())
}

func stringColumn(values []string, mask []vectorized.Mask) *vectorized.DataColumn {
	return vectorized.NewDataColumn(stringType, values, vectorized.NormalizeMask(mask))
}

func unaryString(name, description string, op func(string) string) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: StringFunc, MinArgs: 1, MaxArgs: 1,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireSignature(name, args[0], vectorized.SigString); err != nil {
				return nil, err
			}
			out := make([]string, length)
			for i, s := range args[0].Strings() {
				out[i] = op(s)
			}
			return stringColumn(out, args[0].Mask), nil
		},
	}
}

// regexCache compiles each distinct pattern of a call once
type regexCache map[string]*regexp.Regexp

func (rc regexCache) compile(name, pattern string, anchored bool) (*regexp.Regexp, error) {
	if re, ok := rc[pattern]; ok {
		return re, nil
	}
	source := pattern
	if anchored {
		source = "^(?:" + pattern + ")"
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, NewValidationError("function %q has a bad regular expression %q: %v", name, pattern, err)
	}
	rc[pattern] = re
	return re, nil
}

var numberDirective = regexp.MustCompile(`%[-+ #0]*[0-9]*(?:\.[0-9]+)?([diouxXeEfFgGs])`)

// formatNumber applies one printf-style directive; false when the pattern
// does not hold exactly one directive
func formatNumber(pattern string, v float64, isInt bool) (string, bool) {
	loc := numberDirective.FindAllStringSubmatchIndex(pattern, -1)
	if len(loc) != 1 {
		return "", false
	}
	directive := pattern[loc[0][0]:loc[0][1]]
	verb := pattern[loc[0][2]:loc[0][3]]
	prefix, suffix := pattern[:loc[0][0]], pattern[loc[0][1]:]
	prefix = strings.ReplaceAll(prefix, "%%", "%")
	suffix = strings.ReplaceAll(suffix, "%%", "%")

	var body string
	switch verb {
	case "d", "i", "u":
		body = fmt.Sprintf(directive[:len(directive)-1]+"d", int64(v))
	case "o", "x", "X":
		body = fmt.Sprintf(directive, int64(v))
	case "s":
		if isInt {
			body = fmt.Sprintf(directive, fmt.Sprint(int64(v)))
		} else {
			body = fmt.Sprintf(directive, vectorized.FormatFloat(v, 64))
		}
	default:
		body = fmt.Sprintf(directive, v)
	}
	return prefix + body + suffix, true
}

func (ft *FunctionTable) registerStringFunctions() {
	ft.register(unaryString("uppercase", "Converts to upper case", strings.ToUpper))
	ft.register(unaryString("lowercase", "Converts to lower case", strings.ToLower))
	ft.register(unaryString("trimBlanks", "Removes leading and trailing whitespace", strings.TrimSpace))

	ft.register(&FunctionDefinition{
		Name: "substring", Category: StringFunc, MinArgs: 3, MaxArgs: 3,
		Description: "substring(s, start, length) with a 1-based start",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireSignature("substring", args[0], vectorized.SigString); err != nil {
				return nil, err
			}
			for _, a := range args[1:] {
				if err := requireSignature("substring", a, vectorized.SigInteger); err != nil {
					return nil, err
				}
			}
			mask := vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask, args[2].Mask)
			out := make([]string, length)
			strs, starts, lengths := args[0].Strings(), args[1].Int64s(), args[2].Int64s()
			for i := range out {
				if vectorized.MaskAt(mask, i) != vectorized.Valid {
					continue
				}
				start, n := starts[i], lengths[i]
				if start < 1 || n < 0 {
					if mask == nil {
						mask = vectorized.NewMask(length)
					}
					mask[i] = vectorized.Invalid
					continue
				}
				runes := []rune(strs[i])
				from := start - 1
				if from > int64(len(runes)) {
					from = int64(len(runes))
				}
				to := from + n
				if to > int64(len(runes)) {
					to = int64(len(runes))
				}
				out[i] = string(runes[from:to])
			}
			return stringColumn(out, mask), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "concat", Category: StringFunc, MinArgs: 2, MaxArgs: -1,
		Description: "Joins the display strings of all arguments",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			out := make([]string, length)
			masks := make([][]vectorized.Mask, len(args))
			for j, a := range args {
				for i := range out {
					out[i] += a.FieldType.ValueToString(a.Value(i))
				}
				masks[j] = a.Mask
			}
			return stringColumn(out, vectorized.MapAnyMissingInvalid(masks...)), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "formatNumber", Category: StringFunc, MinArgs: 2, MaxArgs: 2,
		Description: "Formats a number with a printf-style pattern",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if _, err := numberResult("formatNumber", args[:1]); err != nil {
				return nil, err
			}
			if err := requireSignature("formatNumber", args[1], vectorized.SigString); err != nil {
				return nil, err
			}
			isInt := sigOf(args[0]) == vectorized.SigInteger
			values, patterns := floats(args[0]), args[1].Strings()
			mask := vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)
			out := make([]string, length)
			for i := range out {
				if vectorized.MaskAt(mask, i) != vectorized.Valid {
					continue
				}
				s, ok := formatNumber(patterns[i], values[i], isInt)
				if !ok {
					if mask == nil {
						mask = vectorized.NewMask(length)
					}
					mask[i] = vectorized.Invalid
					continue
				}
				out[i] = s
			}
			return stringColumn(out, mask), nil
		},
	})

	ft.register(regexTest("like", "True when the start of the string matches the pattern", true))
	ft.register(regexTest("matches", "True when the pattern matches anywhere in the string", false))

	ft.register(&FunctionDefinition{
		Name: "replace", Category: StringFunc, MinArgs: 3, MaxArgs: 3,
		Description: "replace(s, pattern, replacement) for every match",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			for _, a := range args {
				if err := requireSignature("replace", a, vectorized.SigString); err != nil {
					return nil, err
				}
			}
			cache := regexCache{}
			mask := vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask, args[2].Mask)
			strs, patterns, replacements := args[0].Strings(), args[1].Strings(), args[2].Strings()
			out := make([]string, length)
			for i := range out {
				if vectorized.MaskAt(mask, i) != vectorized.Valid {
					continue
				}
				re, err := cache.compile("replace", patterns[i], false)
				if err != nil {
					return nil, err
				}
				out[i] = re.ReplaceAllString(strs[i], replacements[i])
			}
			return stringColumn(out, mask), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "stringLength", Category: StringFunc, MinArgs: 1, MaxArgs: 1,
		Description: "Number of characters in the string",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireSignature("stringLength", args[0], vectorized.SigString); err != nil {
				return nil, err
			}
			out := make([]int64, length)
			for i, s := range args[0].Strings() {
				out[i] = int64(utf8.RuneCountInString(s))
			}
			return vectorized.NewDataColumn(integerType, out, args[0].Mask), nil
		},
	})
}

func regexTest(name, description string, anchored bool) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: StringFunc, MinArgs: 2, MaxArgs: 2,
		Description: description,
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			for _, a := range args {
				if err := requireSignature(name, a, vectorized.SigString); err != nil {
					return nil, err
				}
			}
			cache := regexCache{}
			mask := vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)
			strs, patterns := args[0].Strings(), args[1].Strings()
			out := make([]bool, length)
			for i := range out {
				if vectorized.MaskAt(mask, i) != vectorized.Valid {
					continue
				}
				re, err := cache.compile(name, patterns[i], anchored)
				if err != nil {
					return nil, err
				}
				out[i] = re.MatchString(strs[i])
			}
			return boolColumn(out, mask), nil
		},
	}
}

func floorDivide(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorModulo(a, b int64) int64 {
	return a - floorDivide(a, b)*b
}

// sinceYear counts whole units between January 1 of a year and a date
func sinceYear(name string, unit int64) *FunctionDefinition {
	return &FunctionDefinition{
		Name: name, Category: DateFunc, MinArgs: 2, MaxArgs: 2,
		Description: "Whole units elapsed since January 1 of the given year",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireSignature(name, args[0], vectorized.SigDate, vectorized.SigDateTime); err != nil {
				return nil, err
			}
			if err := requireSignature(name, args[1], vectorized.SigInteger); err != nil {
				return nil, err
			}
			dates, years := args[0].Int64s(), args[1].Int64s()
			mask := vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)
			out := make([]int64, length)
			starts := map[int64]int64{}
			for i := range out {
				if vectorized.MaskAt(mask, i) != vectorized.Valid {
					continue
				}
				start, ok := starts[years[i]]
				if !ok {
					start = vectorized.YearStartMicros(int(years[i]))
					starts[years[i]] = start
				}
				out[i] = floorDivide(dates[i]-start, unit)
			}
			return vectorized.NewDataColumn(integerType, out, vectorized.NormalizeMask(mask)), nil
		},
	}
}

func (ft *FunctionTable) registerDateFunctions() {
	ft.register(sinceYear("dateDaysSinceYear", vectorized.MicrosPerDay))
	ft.register(sinceYear("dateSecondsSinceYear", vectorized.MicrosPerSecond))

	ft.register(&FunctionDefinition{
		Name: "dateSecondsSinceMidnight", Category: DateFunc, MinArgs: 1, MaxArgs: 1,
		Description: "Whole seconds since the most recent midnight",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireSignature("dateSecondsSinceMidnight", args[0], vectorized.SigTime, vectorized.SigDateTime); err != nil {
				return nil, err
			}
			out := make([]int64, length)
			for i, us := range args[0].Int64s() {
				out[i] = floorModulo(us, vectorized.MicrosPerDay) / vectorized.MicrosPerSecond
			}
			return vectorized.NewDataColumn(integerType, out, args[0].Mask), nil
		},
	})

	ft.register(&FunctionDefinition{
		Name: "formatDatetime", Category: DateFunc, MinArgs: 2, MaxArgs: 2,
		Description: "Formats a date, time or dateTime with a strftime pattern",
		Evaluator: func(length int, args []*vectorized.DataColumn) (*vectorized.DataColumn, error) {
			if err := requireSignature("formatDatetime", args[0], vectorized.SigDate, vectorized.SigTime, vectorized.SigDateTime); err != nil {
				return nil, err
			}
			if err := requireSignature("formatDatetime", args[1], vectorized.SigString); err != nil {
				return nil, err
			}
			mask := vectorized.MapAnyMissingInvalid(args[0].Mask, args[1].Mask)
			stamps, patterns := args[0].Int64s(), args[1].Strings()
			layouts := map[string]string{}
			out := make([]string, length)
			for i := range out {
				if vectorized.MaskAt(mask, i) != vectorized.Valid {
					continue
				}
				layout, ok := layouts[patterns[i]]
				if !ok {
					layout = vectorized.StrftimeToLayout(patterns[i])
					layouts[patterns[i]] = layout
				}
				out[i] = vectorized.MicrosToTime(stamps[i]).Format(layout)
			}
			return stringColumn(out, mask), nil
		},
	})
}
