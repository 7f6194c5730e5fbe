// Package mocks provides test doubles for the oracle.
package mocks

import (
	"context"

	model "github.com/sells-group/catalog-enrich/internal/model"
	oracle "github.com/sells-group/catalog-enrich/internal/oracle"
	mock "github.com/stretchr/testify/mock"
)

// MockOracle is a mock type for the Oracle interface.
type MockOracle struct {
	mock.Mock
}

func ptrResult[T any](ret mock.Arguments) (*T, error) {
	var r0 *T
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*T)
	}
	return r0, ret.Error(1)
}

// CompareImages provides a mock function with given fields: ctx, referenceImage, candidateImage
func (_m *MockOracle) CompareImages(ctx context.Context, referenceImage string, candidateImage string) (*oracle.CompareResult, error) {
	ret := _m.Called(ctx, referenceImage, candidateImage)
	if len(ret) == 0 {
		panic("no return value specified for CompareImages")
	}
	return ptrResult[oracle.CompareResult](ret)
}

// CompareAttributes provides a mock function with given fields: ctx, vision, pageText
func (_m *MockOracle) CompareAttributes(ctx context.Context, vision model.VisionResult, pageText string) (*oracle.CompareResult, error) {
	ret := _m.Called(ctx, vision, pageText)
	if len(ret) == 0 {
		panic("no return value specified for CompareAttributes")
	}
	return ptrResult[oracle.CompareResult](ret)
}

// ExtractRecord provides a mock function with given fields: ctx, req
func (_m *MockOracle) ExtractRecord(ctx context.Context, req oracle.RecordRequest) (*oracle.RecordExtraction, error) {
	ret := _m.Called(ctx, req)
	if len(ret) == 0 {
		panic("no return value specified for ExtractRecord")
	}
	return ptrResult[oracle.RecordExtraction](ret)
}

// ExtractField provides a mock function with given fields: ctx, content, field
func (_m *MockOracle) ExtractField(ctx context.Context, content string, field string) (*oracle.FieldExtraction, error) {
	ret := _m.Called(ctx, content, field)
	if len(ret) == 0 {
		panic("no return value specified for ExtractField")
	}
	return ptrResult[oracle.FieldExtraction](ret)
}

// ExtractClaims provides a mock function with given fields: ctx, text
func (_m *MockOracle) ExtractClaims(ctx context.Context, text string) ([]oracle.Claim, error) {
	ret := _m.Called(ctx, text)
	if len(ret) == 0 {
		panic("no return value specified for ExtractClaims")
	}
	var r0 []oracle.Claim
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]oracle.Claim)
	}
	return r0, ret.Error(1)
}

// VerifyClaim provides a mock function with given fields: ctx, content, claim
func (_m *MockOracle) VerifyClaim(ctx context.Context, content string, claim string) (*oracle.ClaimVerdict, error) {
	ret := _m.Called(ctx, content, claim)
	if len(ret) == 0 {
		panic("no return value specified for VerifyClaim")
	}
	return ptrResult[oracle.ClaimVerdict](ret)
}

// CheckEquivalence provides a mock function with given fields: ctx, field, values
func (_m *MockOracle) CheckEquivalence(ctx context.Context, field string, values []string) (*oracle.Equivalence, error) {
	ret := _m.Called(ctx, field, values)
	if len(ret) == 0 {
		panic("no return value specified for CheckEquivalence")
	}
	return ptrResult[oracle.Equivalence](ret)
}

// NewMockOracle creates a MockOracle and registers cleanup assertions.
func NewMockOracle(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockOracle {
	m := &MockOracle{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ oracle.Oracle = (*MockOracle)(nil)
