// Hand-written in MockGen's output style.
// Source: github.com/hads-project/hads/backend (interfaces: KV)

// Package backendmock provides gomock doubles for the backend.KV contract,
// following trillian's own storage/mock_storage.go generation style, used to
// exercise error paths memkv/badgerkv can't easily be made to produce.
package backendmock

import (
	reflect "reflect"

	gomock "github.com/golang/mock/gomock"

	backend "github.com/hads-project/hads/backend"
)

// MockKV is a mock of the backend.KV interface.
type MockKV struct {
	ctrl     *gomock.Controller
	recorder *MockKVMockRecorder
}

// MockKVMockRecorder is the mock recorder for MockKV.
type MockKVMockRecorder struct {
	mock *MockKV
}

// NewMockKV creates a new mock instance.
func NewMockKV(ctrl *gomock.Controller) *MockKV {
	mock := &MockKV{ctrl: ctrl}
	mock.recorder = &MockKVMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockKV) EXPECT() *MockKVMockRecorder {
	return m.recorder
}

// Get mocks base method.
func (m *MockKV) Get(col backend.Column, key []byte) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", col, key)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Get indicates an expected call of Get.
func (mr *MockKVMockRecorder) Get(col, key interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockKV)(nil).Get), col, key)
}

// RawIterator mocks base method.
func (m *MockKV) RawIterator(col backend.Column, prefix []byte) backend.RawIterator {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RawIterator", col, prefix)
	ret0, _ := ret[0].(backend.RawIterator)
	return ret0
}

// RawIterator indicates an expected call of RawIterator.
func (mr *MockKVMockRecorder) RawIterator(col, prefix interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RawIterator", reflect.TypeOf((*MockKV)(nil).RawIterator), col, prefix)
}

// NewBatch mocks base method.
func (m *MockKV) NewBatch() backend.Batch {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "NewBatch")
	ret0, _ := ret[0].(backend.Batch)
	return ret0
}

// NewBatch indicates an expected call of NewBatch.
func (mr *MockKVMockRecorder) NewBatch() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "NewBatch", reflect.TypeOf((*MockKV)(nil).NewBatch))
}

// Begin mocks base method.
func (m *MockKV) Begin() (backend.Transaction, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Begin")
	ret0, _ := ret[0].(backend.Transaction)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Begin indicates an expected call of Begin.
func (mr *MockKVMockRecorder) Begin() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Begin", reflect.TypeOf((*MockKV)(nil).Begin))
}

// Close mocks base method.
func (m *MockKV) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	ret0, _ := ret[0].(error)
	return ret0
}

// Close indicates an expected call of Close.
func (mr *MockKVMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockKV)(nil).Close))
}

var _ backend.KV = (*MockKV)(nil)
