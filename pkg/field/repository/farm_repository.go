package repository

import "cropcal/entities"

type FarmRepository interface {
	Create(f *entities.Farm) error
	FindByID(id uint) (*entities.Farm, error)
}
