package service

import "cropcal/entities"

type FarmService interface {
	Register(f *entities.Farm) (*entities.Farm, error)
	Get(id uint, uid string) (*entities.Farm, error)
}
