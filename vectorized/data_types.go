package vectorized

import (
	"fmt"
	"strings"
)

// DataType is the declared PMML dataType of a field
type DataType int

const (
	STRING DataType = iota
	INTEGER
	INT64
	FLOAT
	DOUBLE
	BOOLEAN
	OBJECT
	DATE
	TIME
	DATETIME
	DATEDAYS0
	DATEDAYS1960
	DATEDAYS1970
	DATEDAYS1980
	TIMESECONDS
	DATETIMESECONDS0
	DATETIMESECONDS1960
	DATETIMESECONDS1970
	DATETIMESECONDS1980
)

var dataTypeNames = map[DataType]string{
	STRING:              "string",
	INTEGER:             "integer",
	INT64:               "int64",
	FLOAT:               "float",
	DOUBLE:              "double",
	BOOLEAN:             "boolean",
	OBJECT:              "object",
	DATE:                "date",
	TIME:                "time",
	DATETIME:            "dateTime",
	DATEDAYS0:           "dateDaysSince[0]",
	DATEDAYS1960:        "dateDaysSince[1960]",
	DATEDAYS1970:        "dateDaysSince[1970]",
	DATEDAYS1980:        "dateDaysSince[1980]",
	TIMESECONDS:         "timeSeconds",
	DATETIMESECONDS0:    "dateTimeSecondsSince[0]",
	DATETIMESECONDS1960: "dateTimeSecondsSince[1960]",
	DATETIMESECONDS1970: "dateTimeSecondsSince[1970]",
	DATETIMESECONDS1980: "dateTimeSecondsSince[1980]",
}

// String returns the PMML spelling of the data type
func (dt DataType) String() string {
	if name, ok := dataTypeNames[dt]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseDataType maps a PMML dataType attribute to a DataType
func ParseDataType(name string) (DataType, error) {
	for dt, n := range dataTypeNames {
		if n == name {
			return dt, nil
		}
	}
	return STRING, fmt.Errorf("unrecognized dataType: %s", name)
}

// IsNumeric reports integer, int64, float and double
func (dt DataType) IsNumeric() bool {
	switch dt {
	case INTEGER, INT64, FLOAT, DOUBLE:
		return true
	}
	return false
}

// IsInteger reports integer and int64
func (dt DataType) IsInteger() bool {
	return dt == INTEGER || dt == INT64
}

// IsDate reports the date family
func (dt DataType) IsDate() bool {
	switch dt {
	case DATE, DATEDAYS0, DATEDAYS1960, DATEDAYS1970, DATEDAYS1980:
		return true
	}
	return false
}

// IsTime reports the time family
func (dt DataType) IsTime() bool {
	return dt == TIME || dt == TIMESECONDS
}

// IsDateTime reports the dateTime family
func (dt DataType) IsDateTime() bool {
	switch dt {
	case DATETIME, DATETIMESECONDS0, DATETIMESECONDS1960, DATETIMESECONDS1970, DATETIMESECONDS1980:
		return true
	}
	return false
}

// IsTemporal reports any date, time or dateTime type
func (dt DataType) IsTemporal() bool {
	return dt.IsDate() || dt.IsTime() || dt.IsDateTime()
}

// StorageKind is the Go slice type backing a column
type StorageKind int

const (
	StorageInt64 StorageKind = iota
	StorageFloat64
	StorageBool
	StorageString
	StorageObject
)

// Storage returns the slice kind used for columns of this type.
// Temporal types are int64 microseconds since 1970-01-01T00:00:00Z.
func (dt DataType) Storage() StorageKind {
	switch dt {
	case FLOAT, DOUBLE:
		return StorageFloat64
	case BOOLEAN:
		return StorageBool
	case STRING:
		return StorageString
	case OBJECT:
		return StorageObject
	default:
		return StorageInt64
	}
}

// MakeData allocates a zeroed slice of the storage kind
func (sk StorageKind) MakeData(length int) interface{} {
	switch sk {
	case StorageInt64:
		return make([]int64, length)
	case StorageFloat64:
		return make([]float64, length)
	case StorageBool:
		return make([]bool, length)
	case StorageString:
		return make([]string, length)
	default:
		return make([]interface{}, length)
	}
}

// OpType is the operational type of a field
type OpType int

const (
	CATEGORICAL OpType = iota
	ORDINAL
	CONTINUOUS
	ANY
)

// String returns the PMML spelling of the optype
func (ot OpType) String() string {
	switch ot {
	case CATEGORICAL:
		return "categorical"
	case ORDINAL:
		return "ordinal"
	case CONTINUOUS:
		return "continuous"
	case ANY:
		return "any"
	default:
		return "UNKNOWN"
	}
}

// ParseOpType maps a PMML optype attribute to an OpType
func ParseOpType(name string) (OpType, error) {
	switch strings.TrimSpace(name) {
	case "categorical":
		return CATEGORICAL, nil
	case "ordinal":
		return ORDINAL, nil
	case "continuous":
		return CONTINUOUS, nil
	case "any":
		return ANY, nil
	}
	return CONTINUOUS, fmt.Errorf("unrecognized optype: %s", name)
}

// SignatureType is the coarse type class used by function signatures
type SignatureType int

const (
	SigFloat SignatureType = iota
	SigInteger
	SigString
	SigBool
	SigObject
	SigDate
	SigTime
	SigDateTime
)

// Signature classifies a data type for function dispatch
func (dt DataType) Signature() SignatureType {
	switch {
	case dt == FLOAT || dt == DOUBLE:
		return SigFloat
	case dt.IsInteger():
		return SigInteger
	case dt == STRING:
		return SigString
	case dt == BOOLEAN:
		return SigBool
	case dt.IsDate():
		return SigDate
	case dt.IsTime():
		return SigTime
	case dt.IsDateTime():
		return SigDateTime
	default:
		return SigObject
	}
}

// BroadestNumberType returns INTEGER when every argument is an integer and
// DOUBLE when any is floating point. Non-numeric arguments yield an error.
func BroadestNumberType(types ...DataType) (DataType, error) {
	result := INTEGER
	for _, dt := range types {
		switch {
		case dt.IsInteger():
		case dt == FLOAT || dt == DOUBLE:
			result = DOUBLE
		default:
			return STRING, fmt.Errorf("%s is not a number type", dt)
		}
	}
	return result, nil
}
