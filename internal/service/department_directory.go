package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type departmentMemberSource interface {
	ListIDsByDepartment(ctx context.Context, department string) ([]string, error)
}

// DepartmentDirectory resolves the active members of a department, optionally through the cache.
type DepartmentDirectory struct {
	users departmentMemberSource
	cache *CacheService
	ttl   time.Duration
}

// NewDepartmentDirectory constructs the directory. cache may be nil.
func NewDepartmentDirectory(users departmentMemberSource, cache *CacheService, ttl time.Duration) *DepartmentDirectory {
	return &DepartmentDirectory{users: users, cache: cache, ttl: ttl}
}

// Members returns user ids of the department's active members.
func (d *DepartmentDirectory) Members(ctx context.Context, department string) ([]string, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, nil
	}
	key := directoryCacheKey(department)
	var cached []string
	if d.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	ids, err := d.users.ListIDsByDepartment(ctx, department)
	if err != nil {
		return nil, err
	}
	d.cache.Set(ctx, key, ids, d.ttl)
	return ids, nil
}

// Forget drops the cached membership of the department.
func (d *DepartmentDirectory) Forget(ctx context.Context, department string) {
	d.cache.Invalidate(ctx, directoryCacheKey(strings.TrimSpace(department)))
}

// directoryCacheKey keeps the department's case; membership queries match it exactly.
func directoryCacheKey(department string) string {
	return fmt.Sprintf("directory:department:%s", department)
}
