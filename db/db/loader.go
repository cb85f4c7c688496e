package db

import (
	"github.com/vikstrous/dataloadgen"
)

type dataLoaderKey string

const (
	DataLoaderKeyUserData dataLoaderKey = "user_data_loader"
)

// UserDataLoader batches the user lookups a ride listing needs.
//
//	loader, ok := c.MustGet(string(db.DataLoaderKeyUserData)).(*db.UserDataLoader)
type UserDataLoader struct {
	GetUser *dataloadgen.Loader[int64, *User]
}

func NewUserDataLoader(dbWrapper RideDBWrapper) *UserDataLoader {
	return &UserDataLoader{
		GetUser: dataloadgen.NewMappedLoader(dbWrapper.DataLoaderGetUserList),
	}
}
